package cache

import "fmt"

// KeyBuilder builds cache keys in the format: {namespace}:{card_id}:{slot}
type KeyBuilder struct {
	namespace string
}

// NewKeyBuilder creates a new key builder.
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{namespace: namespace}
}

// BuildKey constructs the key of one slot of one card.
func (kb *KeyBuilder) BuildKey(cardID string, slot Slot) string {
	if kb.namespace != "" {
		return fmt.Sprintf("%s:%s:%s", kb.namespace, cardID, slot)
	}
	return fmt.Sprintf("%s:%s", cardID, slot)
}
