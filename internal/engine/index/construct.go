package index

// Construct is the closed set of syntax shapes the indexer acts on.
type Construct int

const (
	ConstructOther Construct = iota
	ConstructImport
	ConstructImportFrom
	ConstructFunction
	ConstructClass
	ConstructDecorated
	ConstructExpression
	ConstructAssignment
	ConstructStructural
	ConstructBlock
	ConstructError
)

var constructs = map[string]Construct{
	"import_statement":        ConstructImport,
	"import_from_statement":   ConstructImportFrom,
	"future_import_statement": ConstructImportFrom,
	"function_definition":     ConstructFunction,
	"class_definition":        ConstructClass,
	"decorated_definition":    ConstructDecorated,
	"expression_statement":    ConstructExpression,
	"assignment":              ConstructAssignment,
	"augmented_assignment":    ConstructAssignment,
	"if_statement":            ConstructStructural,
	"elif_clause":             ConstructStructural,
	"else_clause":             ConstructStructural,
	"for_statement":           ConstructStructural,
	"while_statement":         ConstructStructural,
	"try_statement":           ConstructStructural,
	"except_clause":           ConstructStructural,
	"except_group_clause":     ConstructStructural,
	"finally_clause":          ConstructStructural,
	"with_statement":          ConstructStructural,
	"match_statement":         ConstructStructural,
	"case_clause":             ConstructStructural,
	"block":                   ConstructBlock,
	"ERROR":                   ConstructError,
}

// Classify maps a tree-sitter node kind to a Construct.
func Classify(kind string) Construct {
	if c, ok := constructs[kind]; ok {
		return c
	}
	return ConstructOther
}
