package arena

import "encoding/json"

// Kind names one type of inbound fact.
type Kind string

const (
	KindEntityEntered     Kind = "entity_entered"
	KindAttributeObserved Kind = "attribute_observed"
	KindStatusApplied     Kind = "status_applied"
	KindStatusRemoved     Kind = "status_removed"
	KindTurnAdvanced      Kind = "turn_advanced"
	KindPresenceChanged   Kind = "presence_changed"
	KindCatalogObserved   Kind = "catalog_observed"
	KindBattleOpened      Kind = "battle_opened"
	KindBattleStarted     Kind = "battle_started"
	KindBattlefieldEffect Kind = "battlefield_effect"
	KindBattleEnded       Kind = "battle_ended"
)

// Fact is one structured observation handed over by the extraction layer.
type Fact struct {
	Seq     int64           `json:"seq"`
	Kind    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type entityEntered struct {
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Identifier  string `json:"identifier"`
	Clone       bool   `json:"clone"`
	Summon      bool   `json:"summon"`
}

type attributeObserved struct {
	Identifier string `json:"identifier"`
	Field      string `json:"field"`
	Value      string `json:"value"`
}

type statusChanged struct {
	Identifier string `json:"identifier"`
	Tag        string `json:"tag"`
}

type turnAdvanced struct {
	Identifier string   `json:"identifier"`
	Health     string   `json:"health"`
	Statuses   []string `json:"statuses"`
}

type presenceChanged struct {
	Identifier string `json:"identifier"`
	Presence   string `json:"presence"`
}

type catalogObserved struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Field string `json:"field"`
	Value string `json:"value"`
}

type battleOpened struct {
	Type            string `json:"type"`
	DurationSeconds int    `json:"duration_seconds"`
	DarknessTurns   *int   `json:"darkness_turns"`
}

type battleStarted struct {
	Order []string `json:"order"`
}

type battlefieldEffect struct {
	Effect string `json:"effect"`
	Turns  int    `json:"turns"`
	Active *bool  `json:"active"`
}

type battleEnded struct {
	Outcome string `json:"outcome"`
}

// NewFact marshals payload into a Fact. It is mostly useful in tests and
// for the admin injection endpoint.
func NewFact(kind Kind, payload any) (Fact, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Fact{}, err
	}
	return Fact{Kind: kind, Payload: raw}, nil
}
