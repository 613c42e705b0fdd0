package verifier

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"

	zkpay "github.com/zkpay-protocol/zkpay"
)

// ApprovalDigest recomputes the message the verifier signs over an approval:
// keccak256(to || amount || token || nonce_be || timestamp_be). Callers that
// hold the verifier's public key can check the approval signature against
// this digest without any secret material.
func ApprovalDigest(tx zkpay.TxDescription, nonce, timestamp uint64) []byte {
	msg := make([]byte, 0, len(tx.To)+len(tx.Amount)+len(tx.Token)+16)
	msg = append(msg, tx.To...)
	msg = append(msg, tx.Amount...)
	msg = append(msg, tx.Token...)
	msg = binary.BigEndian.AppendUint64(msg, nonce)
	msg = binary.BigEndian.AppendUint64(msg, timestamp)
	return crypto.Keccak256(msg)
}
