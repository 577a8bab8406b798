package parser

import (
	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Every query captures identifier nodes as @definition or @reference.
// A node matched by both keeps the definition flag.

// languageSpec describes how to load one grammar.
type languageSpec struct {
	name       string
	extensions []string
	language   func() *tree_sitter.Language
	query      string
}

var languageSpecs = []languageSpec{
	{
		name:       "go",
		extensions: []string{".go"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_go.Language()) },
		query: `
        (function_declaration name: (identifier) @definition)
        (method_declaration name: (field_identifier) @definition)
        (type_spec name: (type_identifier) @definition)
        (const_spec name: (identifier) @definition)
        (var_spec name: (identifier) @definition)
        (identifier) @reference
        (type_identifier) @reference
        (field_identifier) @reference
    `,
	},
	{
		name:       "javascript",
		extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_javascript.Language()) },
		query: `
        (function_declaration name: (identifier) @definition)
        (generator_function_declaration name: (identifier) @definition)
        (variable_declarator name: (identifier) @definition)
        (method_definition name: (property_identifier) @definition)
        (class_declaration name: (identifier) @definition)
        (identifier) @reference
        (property_identifier) @reference
    `,
	},
	{
		name:       "typescript",
		extensions: []string{".ts"},
		language: func() *tree_sitter.Language {
			return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
		},
		query: typescriptQuery,
	},
	{
		name:       "tsx",
		extensions: []string{".tsx"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()) },
		query:      typescriptQuery,
	},
	{
		name:       "python",
		extensions: []string{".py", ".pyi"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_python.Language()) },
		query: `
        (function_definition name: (identifier) @definition)
        (class_definition name: (identifier) @definition)
        (identifier) @reference
    `,
	},
	{
		name:       "rust",
		extensions: []string{".rs"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_rust.Language()) },
		query: `
        (function_item name: (identifier) @definition)
        (struct_item name: (type_identifier) @definition)
        (enum_item name: (type_identifier) @definition)
        (trait_item name: (type_identifier) @definition)
        (type_item name: (type_identifier) @definition)
        (mod_item name: (identifier) @definition)
        (identifier) @reference
        (type_identifier) @reference
        (field_identifier) @reference
    `,
	},
	{
		// C shares the C++ grammar
		name:       "cpp",
		extensions: []string{".c", ".h", ".cc", ".cpp", ".cxx", ".hh", ".hpp", ".hxx"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_cpp.Language()) },
		query: `
        (function_definition declarator: (function_declarator declarator: (identifier) @definition))
        (class_specifier name: (type_identifier) @definition)
        (struct_specifier name: (type_identifier) @definition)
        (enum_specifier name: (type_identifier) @definition)
        (identifier) @reference
        (type_identifier) @reference
        (field_identifier) @reference
    `,
	},
	{
		name:       "java",
		extensions: []string{".java"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_java.Language()) },
		query: `
        (method_declaration name: (identifier) @definition)
        (constructor_declaration name: (identifier) @definition)
        (class_declaration name: (identifier) @definition)
        (interface_declaration name: (identifier) @definition)
        (enum_declaration name: (identifier) @definition)
        (identifier) @reference
        (type_identifier) @reference
    `,
	},
	{
		name:       "csharp",
		extensions: []string{".cs"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_csharp.Language()) },
		query: `
        (method_declaration name: (identifier) @definition)
        (class_declaration name: (identifier) @definition)
        (interface_declaration name: (identifier) @definition)
        (struct_declaration name: (identifier) @definition)
        (enum_declaration name: (identifier) @definition)
        (property_declaration name: (identifier) @definition)
        (identifier) @reference
    `,
	},
	{
		name:       "php",
		extensions: []string{".php", ".phtml"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP()) },
		query: `
        (class_declaration name: (name) @definition)
        (interface_declaration name: (name) @definition)
        (trait_declaration name: (name) @definition)
        (function_definition name: (name) @definition)
        (method_declaration name: (name) @definition)
        (name) @reference
    `,
	},
	{
		name:       "zig",
		extensions: []string{".zig"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_zig.Language()) },
		query: `
        (function_declaration (identifier) @definition)
        (identifier) @reference
    `,
	},
}

const typescriptQuery = `
        (function_declaration name: (identifier) @definition)
        (method_definition name: (property_identifier) @definition)
        (class_declaration name: (type_identifier) @definition)
        (interface_declaration name: (type_identifier) @definition)
        (type_alias_declaration name: (type_identifier) @definition)
        (enum_declaration name: (identifier) @definition)
        (identifier) @reference
        (property_identifier) @reference
        (type_identifier) @reference
    `
