package table

var ParseDecimal = parseDecimal
