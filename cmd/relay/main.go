// Relay is an OpenAI-compatible HTTP relay with API key management.
//
// It authenticates clients against a registry of API keys, forwards chat
// completions to a single OpenAI-compatible upstream and streams the answer
// back as server-sent events.
//
// Usage:
//
//	# Start the server with config.yaml from the working directory
//	relay serve
//
//	# Start with a custom configuration file
//	relay serve --config /etc/relay/config.yaml
//
//	# Create an API key
//	relay keys create ci-runner --description "CI pipeline"
//
//	# List keys as JSON
//	relay keys list -o json
//
//	# Check a configuration file
//	relay config validate --config config.yaml
package main

func main() {
	Execute()
}
