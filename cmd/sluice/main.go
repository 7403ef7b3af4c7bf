// Command sluice runs the policy-driven LLM gateway and administers its
// credential and policy store.
package main

func main() {
	Execute()
}
