// Package model defines the minimal model-provider interface the workflow
// engine depends on, a category-keyed client pool, and an in-memory mock for
// tests. Provider adapters live in the subpackages model/openai and
// model/anthropic.
package model
