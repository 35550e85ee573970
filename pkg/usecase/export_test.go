package usecase

// ParseVerdict is exported for testing
var ParseVerdict = parseVerdict
