// Package types provides shared type definitions for the semantic code
// search engine.
//
// This package defines domain types used across multiple components: parsed
// symbols, extracted chunks, parse results, and search results.
//
// # Core Types
//
// Symbol represents a Go language construct (function, method, type, etc.)
// extracted from source code via AST parsing:
//
//	symbol := &types.Symbol{
//	    Name:      "ParseFile",
//	    Kind:      types.KindFunction,
//	    Package:   "parser",
//	    Signature: "func ParseFile(path string) (*ParseResult, error)",
//	}
//
// Chunk represents a semantic code section for embedding and search, cut by
// the tree-sitter chunker along language-specific node boundaries:
//
//	chunk := &types.Chunk{
//	    ID:       "internal_parser_parser_go_L42",
//	    Content:  functionBody,
//	    Language: "go",
//	    NodeKind: types.ChunkFunction,
//	}
//
// # Validation
//
// All domain types implement validation methods to ensure data integrity:
//
//	if err := symbol.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := chunk.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Search Results
//
// SearchResult combines symbol metadata with relevance scoring:
//
//	result := &types.SearchResult{
//	    ChunkID:        "internal_parser_parser_go_L42",
//	    Rank:           1,
//	    RelevanceScore: 0.92,
//	    Symbol:         symbol,
//	    Content:        chunkContent,
//	}
//
// Relevance scores are normalized to [0, 1], with higher values indicating
// better matches.
package types
