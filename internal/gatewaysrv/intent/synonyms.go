package intent

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SynonymEntry lists the query words that match a canonical term, and the
// score a synonym-mediated match contributes. Direct token matches always
// count 1; a zero weight means 1.
type SynonymEntry struct {
	Synonyms []string `yaml:"synonyms"`
	Weight   float64  `yaml:"weight"`
}

// DefaultSynonyms is the built-in synonym table. Keys are canonical terms
// as they appear in registry intents, tags, and measures.
func DefaultSynonyms() map[string]SynonymEntry {
	return map[string]SynonymEntry{
		"ranking":  {Synonyms: []string{"top", "best", "highest", "rank", "rankings", "leaderboard"}, Weight: 1},
		"topn":     {Synonyms: []string{"top"}, Weight: 1},
		"revenue":  {Synonyms: []string{"sales", "income", "earnings", "turnover"}, Weight: 1},
		"count":    {Synonyms: []string{"number", "total", "how many"}, Weight: 1},
		"customer": {Synonyms: []string{"customers", "client", "clients", "account", "accounts"}, Weight: 1},
		"daily":    {Synonyms: []string{"day", "per day"}, Weight: 1},
		"monthly":  {Synonyms: []string{"month", "per month"}, Weight: 1},
		"export":   {Synonyms: []string{"download", "extract", "dump"}, Weight: 1},
		"refresh":  {Synonyms: []string{"rebuild", "update", "reload"}, Weight: 1},
	}
}

// LoadSynonyms reads a synonym table from a YAML file of the form
//
//	canonical:
//	  synonyms: [word, word]
//	  weight: 0.8
//
// An empty path returns the default table.
func LoadSynonyms(path string) (map[string]SynonymEntry, error) {
	if path == "" {
		return DefaultSynonyms(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var table map[string]SynonymEntry
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	return table, nil
}
