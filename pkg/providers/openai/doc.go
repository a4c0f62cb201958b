// Package openai implements providers.Provider for OpenAI-compatible chat
// completion APIs, including Gemini's OpenAI-compatible endpoint.
//
// Requests are sent as JSON to <base_url>/chat/completions. Streaming
// responses are read as Server-Sent Events and relayed chunk by chunk.
// Both paths report an upstream that answered without content as
// *providers.EmptyResponseError.
//
//	p, err := openai.NewProvider(providers.ProviderConfig{
//	    Name:    "gemini",
//	    BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
//	    APIKey:  os.Getenv("GEMINI_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
package openai
