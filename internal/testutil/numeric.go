package testutil

// NumericCase is one input of the numeric id matrix.
type NumericCase struct {
	Name    string
	Input   string
	Numeric bool
}

// NumericCases is the shared matrix for the ^[0-9]+$ rule. It is checked
// against model.IsNumericID, against live trigger output and against every
// dialect's generated predicate.
var NumericCases = []NumericCase{
	{"zero", "0", true},
	{"small", "42", true},
	{"leading zeros", "007", true},
	{"max uint64", "18446744073709551615", true},
	{"empty", "", false},
	{"negative", "-1", false},
	{"plus sign", "+1", false},
	{"leading space", " 1", false},
	{"trailing space", "1 ", false},
	{"decimal", "1.0", false},
	{"exponent", "1e3", false},
	{"string id", "abc-1", false},
	{"hex", "0x1F", false},
	{"arabic-indic digits", "١٢", false},
	{"digit then letter", "12a", false},
}
