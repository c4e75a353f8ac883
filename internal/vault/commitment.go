package vault

import (
	"crypto/sha256"
	"crypto/subtle"
)

// CommitDomainTag separa commitments deste vault de qualquer outro uso do hash
const CommitDomainTag = "coinflip_v1"

var (
	sideTagHeads = []byte("heads")
	sideTagTails = []byte("tails")
)

func sideTag(s Side) ([]byte, error) {
	switch s {
	case Heads:
		return sideTagHeads, nil
	case Tails:
		return sideTagTails, nil
	default:
		return nil, ErrInvalidSide
	}
}

// Commit calcula SHA256(tag || maker || side || secret)
func Commit(maker string, side Side, secret []byte) ([]byte, error) {
	tag, err := sideTag(side)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write([]byte(CommitDomainTag))
	h.Write([]byte(maker))
	h.Write(tag)
	h.Write(secret)
	return h.Sum(nil), nil
}

// VerifyCommitment confere o par (side, secret) revelado contra o commitment gravado.
// Sem efeito colateral: pode ser repetido com outro par até o prazo de reveal.
func VerifyCommitment(commitment []byte, maker string, side Side, secret []byte) error {
	computed, err := Commit(maker, side, secret)
	if err != nil {
		return err
	}
	if len(commitment) != len(computed) || subtle.ConstantTimeCompare(computed, commitment) != 1 {
		return ErrCommitmentMismatch
	}
	return nil
}
