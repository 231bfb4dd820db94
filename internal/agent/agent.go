// Package agent defines the fixed set of AI personas the playground can present.
package agent

// Persona describes a single AI agent personality.
type Persona struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Icon     string `json:"icon"`
	Greeting string `json:"greeting"`
}

// DefaultKey is the persona shown before any switch and after every disconnect.
const DefaultKey = "home"

// keys holds the display order used by pickers and the CLI.
var keys = []string{"home", "prompt", "coding", "product", "sales"}

var personas = map[string]Persona{
	"home": {
		Key:      "home",
		Name:     "Home Agent",
		Role:     "Your AI Concierge",
		Icon:     "fa-home",
		Greeting: "Welcome to Progrify! I'm your Home Agent. I can connect you with our specialized agents: Prompt Engineer, Coding Assistant, Product Builder and Sales Coach. What would you like to work on today?",
	},
	"prompt": {
		Key:      "prompt",
		Name:     "Prompt Engineer",
		Role:     "AI Communication Specialist",
		Icon:     "fa-terminal",
		Greeting: "Hello! I'm your Prompt Engineering Agent. How can I help you craft the perfect prompt?",
	},
	"coding": {
		Key:      "coding",
		Name:     "Coding Assistant",
		Role:     "AI Pair Programmer",
		Icon:     "fa-code",
		Greeting: "Hi there! I'm your AI Coding Assistant. Let's write some code. What's your project?",
	},
	"product": {
		Key:      "product",
		Name:     "Product Builder",
		Role:     "Digital Product Specialist",
		Icon:     "fa-cube",
		Greeting: "Welcome to the Digital Product Builder! What product are we building today?",
	},
	"sales": {
		Key:      "sales",
		Name:     "Sales Coach",
		Role:     "AI Client Simulator",
		Icon:     "fa-handshake",
		Greeting: "Hello! I'm your AI Sales Coach. Ready to practice your sales skills?",
	},
}

// Lookup returns the persona for key. The set is fixed, so a miss means the
// key is unknown and callers are expected to treat it as a no-op.
func Lookup(key string) (Persona, bool) {
	p, ok := personas[key]
	return p, ok
}

// Default returns the home persona.
func Default() Persona {
	return personas[DefaultKey]
}

// Keys returns all persona keys in display order.
func Keys() []string {
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}
