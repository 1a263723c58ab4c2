package auth

import (
	"slices"

	"github.com/samsaffron/tutor/internal/config"
)

// Entitlements are the limits that apply to a user type.
type Entitlements struct {
	MaxMessagesPerDay     int
	AvailableChatModelIDs []string
}

// CanUseModel reports whether id is among the available chat models.
func (e Entitlements) CanUseModel(id string) bool {
	return slices.Contains(e.AvailableChatModelIDs, id)
}

// EntitlementsFor resolves the configured entitlements of t. Types without
// a chat_models list may use every configured model.
func EntitlementsFor(cfg map[string]config.EntitlementConfig, t UserType, allModels []string) Entitlements {
	ec := cfg[string(t)]
	ent := Entitlements{MaxMessagesPerDay: ec.MaxMessagesPerDay}
	if len(ec.ChatModels) == 0 {
		ent.AvailableChatModelIDs = slices.Clone(allModels)
		return ent
	}
	for _, id := range ec.ChatModels {
		if slices.Contains(allModels, id) {
			ent.AvailableChatModelIDs = append(ent.AvailableChatModelIDs, id)
		}
	}
	return ent
}
