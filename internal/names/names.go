package names

import "math/rand/v2"

// Call-sign vocabulary for agents registered without a display name.
// Adjective-noun pairs keep collisions unlikely without needing a
// uniqueness check on the hot registration path.
var (
	adjectives = []string{
		"amber", "attentive", "bold", "brisk", "candid", "careful",
		"cobalt", "crimson", "curious", "deft", "diligent", "eager",
		"earnest", "fleet", "frank", "gentle", "hardy", "keen",
		"lucid", "mellow", "nimble", "obsidian", "patient", "plain",
		"quiet", "rapid", "resolute", "sable", "steady", "stoic",
		"swift", "tidy", "umber", "vivid", "wary", "zealous",
	}

	nouns = []string{
		"anvil", "beacon", "compass", "courier", "drafter", "ferry",
		"gantry", "harbor", "herald", "keel", "lantern", "ledger",
		"lookout", "marshal", "mason", "pilot", "quill", "relay",
		"rudder", "scribe", "sentry", "signal", "spindle", "steward",
		"surveyor", "tether", "turbine", "vanguard", "warden", "wharf",
	}
)

// Random returns a two-word call sign such as "steady courier".
// Safe for concurrent use; rand/v2's top-level functions are synchronized.
func Random() string {
	return adjectives[rand.IntN(len(adjectives))] + " " + nouns[rand.IntN(len(nouns))]
}
