// Package manifestpb defines the two DDF (protobuf-compatible) messages the
// resource core actually consumes, and hand-rolled wire codecs for them built
// on google.golang.org/protobuf/encoding/protowire.
//
// Full DDF parsing is a large external collaborator; only these two
// concrete messages matter here, so resourcecore does not carry a full
// .proto + protoc-gen-go pipeline, only a minimal wire-format reader/writer
// scoped to exactly the fields the manifest format needs. Field numbers
// below are stable and chosen to match dmLiveUpdateDDF's own message
// layout.
//
// © 2025 resourcecore authors. MIT License.
package manifestpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// HashAlgorithm mirrors dmLiveUpdateDDF.HashAlgorithm.
type HashAlgorithm int32

const (
	HashAlgorithmUnknown HashAlgorithm = 0
	HashAlgorithmMD5     HashAlgorithm = 1
	HashAlgorithmSHA1    HashAlgorithm = 2
	HashAlgorithmSHA256  HashAlgorithm = 3
	HashAlgorithmSHA512  HashAlgorithm = 4
)

// SignAlgorithm mirrors dmLiveUpdateDDF.SignAlgorithm.
type SignAlgorithm int32

const (
	SignAlgorithmUnknown SignAlgorithm = 0
	SignAlgorithmRSA     SignAlgorithm = 1
)

// ResourceEntryFlag mirrors dmLiveUpdateDDF's per-entry flag bitmask.
type ResourceEntryFlag uint32

const (
	FlagBundled   ResourceEntryFlag = 1 << 0
	FlagExcluded  ResourceEntryFlag = 1 << 1
	FlagEncrypted ResourceEntryFlag = 1 << 2
	FlagCompressed ResourceEntryFlag = 1 << 3
)

// Header is ManifestData.Header.
type Header struct {
	ResourceHashAlgorithm  HashAlgorithm
	SignatureHashAlgorithm HashAlgorithm
	SignatureSignAlgorithm SignAlgorithm
	ProjectIdentifier      string
}

// ResourceEntry is one entry of ManifestData.ResourceEntries.
type ResourceEntry struct {
	Url            string
	UrlHash        uint64
	Hash           []byte
	Size           uint32
	CompressedSize uint32
	Flags          uint32
	Dependants     []uint64
}

// ManifestData is the inner, signed payload of a ManifestFile.
type ManifestData struct {
	Header          Header
	EngineVersions  []string // SHA1 hex identifiers of supported engine versions
	ResourceEntries []ResourceEntry
}

// ManifestFile is the signed outer envelope.
type ManifestFile struct {
	Version           uint32
	Data              []byte
	Signature         []byte
	ArchiveIdentifier []byte
}

/* ----------------------------- ManifestFile wire codec ----------------------------- */

const (
	fileFieldVersion   = 1
	fileFieldData      = 2
	fileFieldSignature = 3
	fileFieldArchiveID = 4
)

// Marshal encodes f using protobuf wire format.
func (f *ManifestFile) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fileFieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Version))
	b = protowire.AppendTag(b, fileFieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, f.Data)
	b = protowire.AppendTag(b, fileFieldSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, f.Signature)
	b = protowire.AppendTag(b, fileFieldArchiveID, protowire.BytesType)
	b = protowire.AppendBytes(b, f.ArchiveIdentifier)
	return b
}

// Unmarshal decodes b into f.
func (f *ManifestFile) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fileFieldVersion:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.Version = uint32(v)
			b = b[n:]
		case fileFieldData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.Data = append([]byte(nil), v...)
			b = b[n:]
		case fileFieldSignature:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.Signature = append([]byte(nil), v...)
			b = b[n:]
		case fileFieldArchiveID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.ArchiveIdentifier = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

/* ----------------------------- ManifestData wire codec ----------------------------- */

const (
	dataFieldHeader  = 1
	dataFieldEngines = 2
	dataFieldEntries = 3
)

const (
	hdrFieldResourceHashAlgo  = 1
	hdrFieldSignatureHashAlgo = 2
	hdrFieldSignAlgo          = 3
	hdrFieldProjectID         = 4
)

const (
	entryFieldUrl            = 1
	entryFieldUrlHash        = 2
	entryFieldHash           = 3
	entryFieldSize           = 4
	entryFieldCompressedSize = 5
	entryFieldFlags          = 6
	entryFieldDependants     = 7
)

func (h *Header) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, hdrFieldResourceHashAlgo, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.ResourceHashAlgorithm))
	b = protowire.AppendTag(b, hdrFieldSignatureHashAlgo, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.SignatureHashAlgorithm))
	b = protowire.AppendTag(b, hdrFieldSignAlgo, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.SignatureSignAlgorithm))
	b = protowire.AppendTag(b, hdrFieldProjectID, protowire.BytesType)
	b = protowire.AppendString(b, h.ProjectIdentifier)
	return b
}

func (h *Header) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case hdrFieldResourceHashAlgo:
			v, n := protowire.ConsumeVarint(b)
			h.ResourceHashAlgorithm = HashAlgorithm(v)
			b = b[n:]
		case hdrFieldSignatureHashAlgo:
			v, n := protowire.ConsumeVarint(b)
			h.SignatureHashAlgorithm = HashAlgorithm(v)
			b = b[n:]
		case hdrFieldSignAlgo:
			v, n := protowire.ConsumeVarint(b)
			h.SignatureSignAlgorithm = SignAlgorithm(v)
			b = b[n:]
		case hdrFieldProjectID:
			v, n := protowire.ConsumeBytes(b)
			h.ProjectIdentifier = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func (e *ResourceEntry) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, entryFieldUrl, protowire.BytesType)
	b = protowire.AppendString(b, e.Url)
	b = protowire.AppendTag(b, entryFieldUrlHash, protowire.VarintType)
	b = protowire.AppendVarint(b, e.UrlHash)
	b = protowire.AppendTag(b, entryFieldHash, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Hash)
	b = protowire.AppendTag(b, entryFieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Size))
	b = protowire.AppendTag(b, entryFieldCompressedSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.CompressedSize))
	b = protowire.AppendTag(b, entryFieldFlags, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Flags))
	for _, d := range e.Dependants {
		b = protowire.AppendTag(b, entryFieldDependants, protowire.VarintType)
		b = protowire.AppendVarint(b, d)
	}
	return b
}

func (e *ResourceEntry) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case entryFieldUrl:
			v, n := protowire.ConsumeBytes(b)
			e.Url = string(v)
			b = b[n:]
		case entryFieldUrlHash:
			v, n := protowire.ConsumeVarint(b)
			e.UrlHash = v
			b = b[n:]
		case entryFieldHash:
			v, n := protowire.ConsumeBytes(b)
			e.Hash = append([]byte(nil), v...)
			b = b[n:]
		case entryFieldSize:
			v, n := protowire.ConsumeVarint(b)
			e.Size = uint32(v)
			b = b[n:]
		case entryFieldCompressedSize:
			v, n := protowire.ConsumeVarint(b)
			e.CompressedSize = uint32(v)
			b = b[n:]
		case entryFieldFlags:
			v, n := protowire.ConsumeVarint(b)
			e.Flags = uint32(v)
			b = b[n:]
		case entryFieldDependants:
			v, n := protowire.ConsumeVarint(b)
			e.Dependants = append(e.Dependants, v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// Marshal encodes d using protobuf wire format.
func (d *ManifestData) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, dataFieldHeader, protowire.BytesType)
	b = protowire.AppendBytes(b, d.Header.marshal())
	for _, ev := range d.EngineVersions {
		b = protowire.AppendTag(b, dataFieldEngines, protowire.BytesType)
		b = protowire.AppendString(b, ev)
	}
	for i := range d.ResourceEntries {
		b = protowire.AppendTag(b, dataFieldEntries, protowire.BytesType)
		b = protowire.AppendBytes(b, d.ResourceEntries[i].marshal())
	}
	return b
}

// Unmarshal decodes b into d.
func (d *ManifestData) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case dataFieldHeader:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := d.Header.unmarshal(v); err != nil {
				return fmt.Errorf("header: %w", err)
			}
			b = b[n:]
		case dataFieldEngines:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			d.EngineVersions = append(d.EngineVersions, string(v))
			b = b[n:]
		case dataFieldEntries:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			var e ResourceEntry
			if err := e.unmarshal(v); err != nil {
				return fmt.Errorf("resource entry: %w", err)
			}
			d.ResourceEntries = append(d.ResourceEntries, e)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
