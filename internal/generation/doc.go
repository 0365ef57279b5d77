// Package generation defines the contract with the external AI/LLM service
// that produces digest text. It abstracts the details of LLM API integration
// (Gemini), allowing the pipeline to stream generated text without coupling
// to a specific provider.
package generation
