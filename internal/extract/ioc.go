package extract

import "strings"

// Type is the kind of an indicator of compromise.
type Type string

const (
	TypeIP       Type = "ip"
	TypeDomain   Type = "domain"
	TypeURL      Type = "url"
	TypeMD5      Type = "hash-md5"
	TypeSHA1     Type = "hash-sha1"
	TypeSHA256   Type = "hash-sha256"
	TypeEmail    Type = "email"
	TypeFilename Type = "filename"
	TypeCVE      Type = "cve"
	TypeOther    Type = "other"
)

// Types lists every Type in display order.
var Types = []Type{
	TypeIP, TypeDomain, TypeURL, TypeMD5, TypeSHA1, TypeSHA256,
	TypeEmail, TypeFilename, TypeCVE, TypeOther,
}

// Rank is the position of t in Types. Unknown types sort last.
func (t Type) Rank() int {
	for i, known := range Types {
		if known == t {
			return i
		}
	}
	return len(Types)
}

// Record is one indicator as extracted from a single chunk.
type Record struct {
	Type        Type   `json:"type"`
	Value       string `json:"value"`
	Context     string `json:"context"`
	SourceChunk int    `json:"source_chunk"`
}

// Key identifies duplicates: two records with equal keys are the same indicator.
type Key struct {
	Type  Type
	Value string
}

func (r Record) Key() Key { return Key{Type: r.Type, Value: r.Value} }

var typeAliases = map[string]Type{
	"ip": TypeIP, "ip address": TypeIP, "ipv4": TypeIP, "ipv6": TypeIP,
	"ipv4 address": TypeIP, "ipv6 address": TypeIP, "ip addr": TypeIP,

	"domain": TypeDomain, "domain name": TypeDomain, "hostname": TypeDomain,
	"host": TypeDomain, "fqdn": TypeDomain, "subdomain": TypeDomain,

	"url": TypeURL, "uri": TypeURL, "link": TypeURL,

	"md5": TypeMD5, "hash md5": TypeMD5, "md5 hash": TypeMD5,
	"sha1": TypeSHA1, "sha 1": TypeSHA1, "hash sha1": TypeSHA1, "sha1 hash": TypeSHA1,
	"sha256": TypeSHA256, "sha 256": TypeSHA256, "hash sha256": TypeSHA256, "sha256 hash": TypeSHA256,

	"email": TypeEmail, "email address": TypeEmail, "e mail": TypeEmail, "mail": TypeEmail,

	"filename": TypeFilename, "file name": TypeFilename, "file": TypeFilename,
	"file path": TypeFilename, "filepath": TypeFilename, "path": TypeFilename,

	"cve": TypeCVE, "cve id": TypeCVE, "vulnerability": TypeCVE,

	"other": TypeOther,
}

var genericHashLabels = map[string]bool{
	"hash": true, "file hash": true, "filehash": true, "checksum": true,
}

// ParseType maps a free-form type label to a Type. Generic hash labels are
// resolved from the length of value; anything unrecognised becomes TypeOther.
func ParseType(label, value string) Type {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")

	if t, ok := typeAliases[key]; ok {
		return t
	}
	if genericHashLabels[key] {
		switch len(strings.TrimSpace(value)) {
		case 32:
			return TypeMD5
		case 40:
			return TypeSHA1
		case 64:
			return TypeSHA256
		}
	}
	return TypeOther
}
