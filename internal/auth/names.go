package auth

import (
	"context"
	"fmt"
	"math/rand"
)

var adjectives = []string{
	"brave", "quick", "quiet", "bright", "bold", "clever", "gentle", "steady",
	"cheerful", "proud", "warm", "calm", "strong", "honest", "thoughtful",
	"merry", "jolly", "solid", "diligent", "creative", "careful", "eager",
	"daring", "swift", "fierce", "subtle", "seasoned", "soft", "lively",
	"nimble", "confident", "graceful", "tidy", "sturdy", "fresh", "skillful",
	"inspiring", "reliable", "precise", "balanced", "serene", "mighty",
	"shining", "vivid", "clear", "resolute", "capable", "spirited", "tough",
	"flashing",
}

var animals = []string{
	"tiger", "lion", "eagle", "wolf", "leopard", "bear", "fox", "otter",
	"dolphin", "penguin", "owl", "hawk", "cheetah", "jaguar", "hyena",
	"buffalo", "elephant", "rhino", "giraffe", "whale", "sparrow", "pigeon",
	"parrot", "magpie", "crane", "heron", "cricket", "deer", "elk", "raccoon",
	"mole", "nutria", "sealion", "seaotter", "octopus", "shark", "cormorant",
	"chameleon", "iguana", "turtle", "panda", "kangaroo", "koala", "squirrel",
	"skunk", "badger", "cat", "puppy", "rabbit", "toad",
}

const nameAttempts = 50

func randomName() string {
	return adjectives[rand.Intn(len(adjectives))] + " " + animals[rand.Intn(len(animals))]
}

// uniqueName draws random display names until one is free. After
// nameAttempts collisions it appends a four-digit suffix.
func uniqueName(ctx context.Context, taken func(context.Context, string) (bool, error), gen func() string) (string, error) {
	for i := 0; i < nameAttempts; i++ {
		candidate := gen()
		exists, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return fmt.Sprintf("%s %d", gen(), 1000+rand.Intn(9000)), nil
}
