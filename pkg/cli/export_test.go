package cli

// ChatLoop is exported for testing
var ChatLoop = chatLoop

// PrintIndexReports is exported for testing
var PrintIndexReports = printIndexReports

// IsExit is exported for testing
var IsExit = isExit
