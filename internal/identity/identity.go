package identity

import (
	cryptorand "crypto/rand"
	"fmt"
	"math/rand"

	"anonchat/pkg/logger"
)

const (
	roomIDLength      = 8
	ownerSecretLength = 32

	roomIDAlphabet      = "abcdefghijklmnopqrstuvwxyz0123456789"
	ownerSecretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var adjectives = []string{
	"Happy", "Clever", "Swift", "Brave", "Calm", "Eager", "Gentle", "Jolly",
	"Kind", "Lively", "Merry", "Noble", "Proud", "Quick", "Sunny", "Witty",
	"Zesty", "Bright", "Cosmic", "Dancing", "Electric", "Flying", "Glowing",
	"Humble", "Icy", "Jazzy", "Keen", "Lucky", "Mystic", "Nimble", "Ocean",
	"Peaceful", "Quirky", "Radiant", "Silent", "Turbo", "Urban", "Vivid",
	"Wild", "Xenial", "Young", "Zealous", "Arctic", "Binary", "Cyber",
	"Digital", "Echo", "Fusion", "Galactic", "Hyper", "Infinite", "Jungle",
}

var nouns = []string{
	"Panda", "Tiger", "Eagle", "Dolphin", "Wolf", "Fox", "Bear", "Hawk",
	"Lion", "Otter", "Raven", "Shark", "Falcon", "Koala", "Lynx", "Owl",
	"Phoenix", "Dragon", "Unicorn", "Griffin", "Ninja", "Pirate", "Wizard",
	"Knight", "Ranger", "Scout", "Pilot", "Captain", "Comet", "Star",
	"Moon", "Sun", "Storm", "Thunder", "Lightning", "Blaze", "Frost",
	"Shadow", "Spirit", "Phantom", "Spark", "Flame", "Wave", "Wind",
	"Cloud", "River", "Mountain", "Forest", "Desert", "Ocean",
}

// Colors is the display palette users are assigned from.
var Colors = []string{
	"#E53935", // red
	"#D81B60", // pink
	"#8E24AA", // purple
	"#5E35B1", // deep purple
	"#3949AB", // indigo
	"#1E88E5", // blue
	"#039BE5", // light blue
	"#00ACC1", // cyan
	"#00897B", // teal
	"#43A047", // green
	"#7CB342", // light green
	"#C0CA33", // lime
	"#FDD835", // yellow
	"#FFB300", // amber
	"#FB8C00", // orange
	"#F4511E", // deep orange
}

// NewRoomID returns an 8-character lowercase alphanumeric room ID. It is
// not guaranteed unique; the store re-rolls on collision against live rooms.
func NewRoomID() string {
	b := make([]byte, roomIDLength)
	for i := range b {
		b[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
	}
	return string(b)
}

// NewOwnerSecret returns a 32-character mixed-case alphanumeric capability
// token sourced from crypto/rand.
func NewOwnerSecret() string {
	raw := make([]byte, ownerSecretLength)
	if _, err := cryptorand.Read(raw); err != nil {
		// crypto/rand never fails on supported platforms
		logger.Fatal("reading random bytes: %v", err)
	}
	b := make([]byte, ownerSecretLength)
	for i, r := range raw {
		b[i] = ownerSecretAlphabet[int(r)%len(ownerSecretAlphabet)]
	}
	return string(b)
}

// NewNickname returns an adjective+noun+number display name, e.g.
// "SwiftOtter42". Not guaranteed unique within a room.
func NewNickname() string {
	adjective := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	return fmt.Sprintf("%s%s%d", adjective, noun, rand.Intn(100))
}

// NewColor picks a display color uniformly from the palette.
func NewColor() string {
	return Colors[rand.Intn(len(Colors))]
}
