package registry

import (
	"fmt"

	"github.com/datagate-io/datagate/internal/gatewaysrv/catalog"
)

// SafetyFindings evaluates a pending promotion of staging over active.
// Removals relative to the active generation block unless the caller
// overrides; unresolved descriptor errors from the backing scan always
// block. Additions and modifications are reported as non-blocking.
func SafetyFindings(active, staging *GenerationSet, descriptorErrors []catalog.DescriptorError, allowRemovals bool) []Finding {
	var findings []Finding

	for _, e := range DiffSets(active, staging) {
		switch e.ChangeType {
		case string(catalog.ChangeRemoved):
			findings = append(findings, Finding{
				Kind:     e.Kind,
				Key:      e.Key,
				Reason:   fmt.Sprintf("%s %q present in active generation but missing from staging", e.Kind, e.Key),
				Blocking: !allowRemovals,
			})
		default:
			findings = append(findings, Finding{
				Kind:     e.Kind,
				Key:      e.Key,
				Reason:   fmt.Sprintf("%s %q %s", e.Kind, e.Key, e.ChangeType),
				Blocking: false,
			})
		}
	}

	for _, de := range descriptorErrors {
		findings = append(findings, Finding{
			Kind:     "descriptor",
			Key:      de.ObjectName,
			Reason:   "unresolved descriptor error: " + de.Reason,
			Blocking: true,
		})
	}

	return findings
}

// Blocking reports whether any finding blocks promotion.
func Blocking(findings []Finding) bool {
	for _, f := range findings {
		if f.Blocking {
			return true
		}
	}
	return false
}
