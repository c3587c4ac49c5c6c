/*
Package naming repairs filenames and object keys whose encoding was
damaged in transit.

Object keys and upload filenames reach the orchestrator from browsers,
S3 clients, and callback payloads, and may arrive URL-percent-encoded,
as UTF-8 bytes misdecoded into Latin-1 ("mojibake"), or as GBK byte
sequences. The codec normalizes all of these into clean UTF-8 without
ever corrupting a name that was already correct.

# Algorithm

DecodeFilename applies a deterministic chain:

 1. Take the base name of the URL or path.
 2. If it contains %XX sequences, URL-decode once; accept the result when
    it changed and is free of known mojibake code points.
 3. If the name is valid UTF-8 with no mojibake code points, return it.
 4. Otherwise re-encode through Latin-1 and then GBK; the first candidate
    free of mojibake code points wins.
 5. If nothing helps, return the input unchanged.

The mojibake set is a fixed list of Latin-1 code points that appear when
multi-byte UTF-8 sequences are read byte-by-byte. The chain is pure and
idempotent: DecodeFilename(DecodeFilename(x)) == DecodeFilename(x).

FixPath applies the same repair to a whole path, EnsureUTF8 only repairs
strings that fail UTF-8 validation.

# Limits

Names that are neither valid UTF-8, Latin-1 mojibake, nor GBK-encodable
pass through unchanged; the caller decides whether to treat them as
opaque bytes or reject the request. Accented European names such as
"café.pdf" contain code points from the mojibake set but survive the
chain untouched because no re-encoding yields valid UTF-8.
*/
package naming
