package models

// StatusListEntry is the credentialStatus of an issued certificate.
// StatusListIndex is a string on the wire.
type StatusListEntry struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	StatusPurpose        string `json:"statusPurpose"`
	StatusListIndex      string `json:"statusListIndex"`
	StatusListCredential string `json:"statusListCredential"`
}

// BitstringStatusListSubject is the credentialSubject of a status list credential.
type BitstringStatusListSubject struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	StatusPurpose string `json:"statusPurpose"`
	EncodedList   string `json:"encodedList"`
}

// CachedStatusList is a status list credential as stored in the cache.
type CachedStatusList struct {
	Credential *VerifiableCredential `json:"credential"`
	ETag       string                `json:"etag"`
	Version    int64                 `json:"version"`
}
