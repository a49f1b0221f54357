package gatewaysrv

// Version is the datagate release version.
const Version = "0.1.0"
