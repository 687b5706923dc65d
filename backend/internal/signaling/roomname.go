package signaling

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

var adjectives = []string{
	"amber", "bold", "brisk", "calm", "clever", "cosy", "crisp", "dusty", "eager", "fancy",
	"gentle", "glossy", "humble", "icy", "jolly", "keen", "lively", "lucky", "mellow", "misty",
	"noble", "plucky", "quiet", "rapid", "rusty", "shiny", "sleepy", "sunny", "swift", "witty",
}

var animals = []string{
	"badger", "beaver", "bison", "crane", "dingo", "falcon", "ferret", "gecko", "heron", "ibis",
	"jackal", "koala", "lemur", "lynx", "marmot", "moose", "newt", "ocelot", "otter", "panda",
	"puffin", "quokka", "raven", "seal", "stoat", "tapir", "toucan", "walrus", "wombat", "yak",
}

var things = []string{
	"anchor", "beacon", "bridge", "canyon", "comet", "compass", "harbor", "island", "lantern", "meadow",
	"nebula", "orbit", "pebble", "prism", "quartz", "ridge", "river", "rocket", "signal", "summit",
	"tide", "timber", "tunnel", "valley", "voyage", "willow", "window", "harvest", "glacier", "ember",
}

// maxNameAttempts bounds the search for an unused generated name.
const maxNameAttempts = 64

// GenerateRoomName creates a memorable room name such as "swift-otter-beacon"
// that is not reported as taken.
func GenerateRoomName(taken func(string) bool) (string, error) {
	lists := [][]string{adjectives, animals, things}
	for i := 0; i < maxNameAttempts; i++ {
		words := make([]string, len(lists))
		for j, list := range lists {
			n, err := randomIndex(len(list))
			if err != nil {
				return "", fmt.Errorf("generate room name: %w", err)
			}
			words[j] = list[n]
		}
		name := strings.Join(words, "-")
		if taken == nil || !taken(name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("generate room name: no free name after %d attempts", maxNameAttempts)
}

// randomIndex returns a cryptographically secure index in [0, max).
func randomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
