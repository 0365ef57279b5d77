// Package gemini implements the generation.Generator interface using
// Google's Gemini API. It streams generated digest text chunk by chunk
// through the genai SDK's server-streaming endpoint.
package gemini
