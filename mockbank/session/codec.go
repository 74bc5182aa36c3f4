package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
)

// record is the stored shape of a Session. Field names follow the legacy user
// document so older rows still decode.
type record struct {
	Flow       string    `json:"flow,omitempty"`
	Step       int       `json:"step,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	MethodType string    `json:"selected_method_type,omitempty"`
	CryptoType string    `json:"selected_crypto_type,omitempty"`
	Details    string    `json:"selected_method_details,omitempty"`
	TxID       string    `json:"tx_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Marshal encodes s for storage.
func Marshal(s Session) ([]byte, error) {
	rec := record{
		Flow:       string(s.flow),
		Step:       s.stage.Step(),
		Stage:      string(s.stage),
		Amount:     s.amount,
		MethodType: string(s.methodType),
		CryptoType: string(s.crypto),
		Details:    s.details,
		UpdatedAt:  s.updatedAt,
	}
	if s.txID != uuid.Nil {
		rec.TxID = s.txID.String()
	}
	return json.Marshal(rec)
}

// Unmarshal decodes a stored session. Empty input yields the idle session;
// field sets that do not fit the stage yield ErrCorrupt.
func Unmarshal(data []byte) (Session, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Idle(), nil
	}
	var rec record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return Idle(), fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	s := Session{
		flow:       Flow(rec.Flow),
		stage:      Stage(rec.Stage),
		amount:     rec.Amount,
		methodType: model.MethodType(rec.MethodType),
		crypto:     model.CryptoType(rec.CryptoType),
		details:    rec.Details,
		updatedAt:  rec.UpdatedAt,
	}
	if rec.TxID != "" {
		id, err := uuid.Parse(rec.TxID)
		if err != nil {
			return Idle(), fmt.Errorf("%w: tx_id: %v", ErrCorrupt, err)
		}
		s.txID = id
	}
	if s.crypto != "" {
		if c, ok := model.ParseCryptoType(string(s.crypto)); ok {
			s.crypto = c
		}
	}
	if s.flow != FlowNone && s.stage == StageIdle {
		s.stage = stageFromStep(rec.Step, s)
	}
	if rec.Step != 0 && s.stage.Step() != rec.Step {
		return s, fmt.Errorf("%w: step %d does not match stage %s", ErrCorrupt, rec.Step, s.stageName())
	}
	if err := s.validate(); err != nil {
		return s, err
	}
	return s, nil
}

// stageFromStep recovers the stage of records written with a step number only.
func stageFromStep(step int, s Session) Stage {
	switch step {
	case 1:
		return StageAmount
	case 2:
		return StageSelectMethod
	case 3:
		switch {
		case s.methodType == model.MethodCrypto && s.crypto == "":
			return StageSelectCrypto
		case s.methodType == model.MethodCrypto:
			return StageEnterAddress
		default:
			return StageEnterDetails
		}
	case 4:
		return StageConfirm
	}
	return StageIdle
}
