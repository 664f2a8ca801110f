package models

import "encoding/json"

// VerifiableCredential is a W3C VC v2 document. CredentialSubject holds either an
// AchievementSubject or a BitstringStatusListSubject; after decoding from JSON it is a map.
type VerifiableCredential struct {
	Context           []string            `json:"@context"`
	ID                string              `json:"id"`
	Type              []string            `json:"type"`
	Name              string              `json:"name,omitempty"`
	Issuer            Issuer              `json:"issuer"`
	ValidFrom         string              `json:"validFrom"`
	ValidUntil        string              `json:"validUntil,omitempty"`
	CredentialSubject interface{}         `json:"credentialSubject"`
	CredentialStatus  *StatusListEntry    `json:"credentialStatus,omitempty"`
	Proof             *DataIntegrityProof `json:"proof,omitempty"`
}

// Unsigned returns a shallow copy without the proof.
func (vc *VerifiableCredential) Unsigned() *VerifiableCredential {
	cp := *vc
	cp.Proof = nil
	return &cp
}

// DecodeSubject decodes CredentialSubject into out.
func (vc *VerifiableCredential) DecodeSubject(out interface{}) error {
	b, err := json.Marshal(vc.CredentialSubject)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// Issuer is the Open Badges issuer profile.
type Issuer struct {
	ID   string   `json:"id"`
	Type []string `json:"type"`
	Name string   `json:"name"`
	URL  string   `json:"url,omitempty"`
}

// AchievementSubject is the credentialSubject of a certificate.
type AchievementSubject struct {
	ID          string      `json:"id"`
	Type        []string    `json:"type"`
	Name        string      `json:"name,omitempty"`
	Achievement Achievement `json:"achievement"`
	Result      []Result    `json:"result"`
}

// Achievement describes the control group level that was certified.
type Achievement struct {
	ID          string   `json:"id"`
	Type        []string `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Criteria    Criteria `json:"criteria"`
}

type Criteria struct {
	Narrative string `json:"narrative"`
}

// Result is one scored line of a certificate, e.g. {"Overall Score", "95%"}.
type Result struct {
	Type              []string `json:"type"`
	ResultDescription string   `json:"resultDescription"`
	Value             string   `json:"value"`
}

// DataIntegrityProof is a W3C Data Integrity proof. Immutable once produced.
type DataIntegrityProof struct {
	Type               string `json:"type"`
	Cryptosuite        string `json:"cryptosuite"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue,omitempty"`
}

// Options returns the proof configuration that is hashed when signing: the proof minus proofValue.
func (p DataIntegrityProof) Options() DataIntegrityProof {
	p.ProofValue = ""
	return p
}

// IssuedCredential is the output of credential issuance.
type IssuedCredential struct {
	Credential      *VerifiableCredential
	CertificateHash string
	Signature       string
	KeyVersion      int
}

// VerificationResult reports the integrity and signature checks independently.
type VerificationResult struct {
	Valid          bool   `json:"valid"`
	IntegrityValid bool   `json:"integrityValid"`
	SignatureValid bool   `json:"signatureValid"`
	Revoked        bool   `json:"revoked"`
	Expired        bool   `json:"expired"`
	Reason         string `json:"reason,omitempty"`
}
