package syncengine

import (
	"encoding/json"
	"fmt"

	"github.com/sparkwallet/spark/keys"
)

// Signer is the capability interface the sync engine needs from
// *signer.Signer. Records are ECIES-encrypted to the wallet's own
// identity key; any request signature the wire client attaches is
// also produced by the Signer.
type Signer interface {
	IdentityPublicKey() keys.PublicKey
	EciesEncrypt(msg []byte, recipient keys.PublicKey) ([]byte, error)
	EciesDecrypt(ciphertext []byte, source keys.PrivateKeySource) ([]byte, error)
	SignECDSARecoverable(msg []byte, source keys.PrivateKeySource) ([]byte, error)
}

// wirePayload is the JSON shape carried inside a record's ECIES
// ciphertext; it is deliberately distinct from the outer WireRecord
// envelope (whose ID is the plain "type:data_id" string used for
// addressing before decryption is possible).
type wirePayload struct {
	ID   RecordID          `json:"id"`
	Data map[string]string `json:"data"`
}

type wireRecordID struct {
	Type   string `json:"type"`
	DataID string `json:"data_id"`
}

func (id RecordID) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecordID{Type: id.Type, DataID: id.DataID})
}

func (id *RecordID) UnmarshalJSON(b []byte) error {
	var w wireRecordID
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	id.Type, id.DataID = w.Type, w.DataID
	return nil
}

// encryptRecord serializes record's id and data to JSON and
// ECIES-encrypts it to the wallet's own identity key, producing the
// envelope the wire client pushes via SetRecord.
func encryptRecord(s Signer, record Record) (WireRecord, error) {
	plaintext, err := json.Marshal(wirePayload{ID: record.ID, Data: record.Data})
	if err != nil {
		return WireRecord{}, fmt.Errorf("syncengine: marshal record: %w", err)
	}

	ciphertext, err := s.EciesEncrypt(plaintext, s.IdentityPublicKey())
	if err != nil {
		return WireRecord{}, fmt.Errorf("syncengine: encrypt record: %w", err)
	}

	return WireRecord{
		ID:            record.ID.String(),
		Revision:      record.Revision,
		SchemaVersion: record.SchemaVersion,
		Data:          ciphertext,
	}, nil
}

// decryptRecord reverses encryptRecord, propagating decryption
// failure per the encryption contract.
func decryptRecord(s Signer, wire WireRecord) (Record, error) {
	plaintext, err := s.EciesDecrypt(wire.Data, keys.Identity())
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	var payload wirePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return Record{}, fmt.Errorf("syncengine: unmarshal record: %w", err)
	}

	return Record{
		ID:            payload.ID,
		Revision:      wire.Revision,
		SchemaVersion: wire.SchemaVersion,
		Data:          payload.Data,
	}, nil
}
