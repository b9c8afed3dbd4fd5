package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainProgram prefixes program hashes.
// Version suffix enables future algorithm migration.
const DomainProgram = "banish/program/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ProgramHash computes a structural hash of a program.
//
// Positions and the file name are excluded: two sources that differ only in
// layout or comments hash identically. Host fragments are hashed by text.
func ProgramHash(p *Program) (string, error) {
	if p == nil {
		return "", fmt.Errorf("ProgramHash: nil program")
	}
	desc, err := describe(p, false)
	if err != nil {
		return "", fmt.Errorf("ProgramHash: %w", err)
	}
	canonical, err := MarshalCanonical(desc)
	if err != nil {
		return "", fmt.Errorf("ProgramHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

// MustProgramHash is like ProgramHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustProgramHash(p *Program) string {
	h, err := ProgramHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
