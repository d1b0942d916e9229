// Package diversity scores how spread a peer set is across network
// prefixes and selects diverse connection targets. Concentration in one
// prefix is what an eclipse or Sybil attacker needs — selection caps how
// many peers any single prefix bucket may contribute.
//
// Everything here is a pure function over peer snapshots: given the same
// input, Score and SelectDiverse always produce the same output.
package diversity

import (
	"net/netip"
	"sort"

	"github.com/chainmesh-network/chainmesh/internal/domain"
)

const (
	// DefaultPrefixBits groups IPv4 peers by their /16. Peers inside the
	// same /16 likely share hosting infrastructure. IPv6 peers are grouped
	// at double the width (/32), the conventional equivalent.
	DefaultPrefixBits = 16

	// PerBucketCap is the most peers a single prefix bucket may contribute
	// to a diverse selection before backfill kicks in.
	PerBucketCap = 2
)

// IPPrefix returns the bucket key for a host. Literal IPv4 addresses are
// truncated to bits; IPv6 to 2×bits. Hostnames that are not literal IPs
// bucket by the hostname itself.
func IPPrefix(host string, bits int) string {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return host
	}
	if !addr.Is4() {
		bits *= 2
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return host
	}
	return prefix.String()
}

// Score measures spread across distinct prefix buckets, 0–100.
//
//	score = distinct_buckets / total_peers × 100
//
// Adding a peer from a new bucket never lowers the score; adding one to an
// already-represented bucket never raises it. An empty set scores 100 —
// nothing is concentrated yet.
func Score(peers []*domain.PeerInfo) float64 {
	if len(peers) == 0 {
		return 100
	}
	buckets := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		buckets[IPPrefix(p.IPAddress, DefaultPrefixBits)] = struct{}{}
	}
	return float64(len(buckets)) / float64(len(peers)) * 100
}

// SelectDiverse picks up to count peers, spreading the selection across
// prefix buckets. The greedy walk is deterministic:
//
//  1. Candidates are ordered by quality desc, reliability desc,
//     first-seen asc (established peers win ties), then URL asc as the
//     final total-order tie-break. With preferQuality=false the quality
//     ordering is skipped and candidates are taken in URL order.
//  2. A peer is admitted only while its bucket holds fewer than
//     PerBucketCap admitted peers.
//  3. If diverse candidates run out before count is reached, the remaining
//     slots are backfilled with the best skipped peers regardless of
//     bucket, in the same order.
func SelectDiverse(peers []*domain.PeerInfo, count int, preferQuality bool) []*domain.PeerInfo {
	if count <= 0 || len(peers) == 0 {
		return nil
	}

	candidates := make([]*domain.PeerInfo, 0, len(peers))
	seen := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		if _, dup := seen[p.URL]; dup {
			continue
		}
		seen[p.URL] = struct{}{}
		candidates = append(candidates, p)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if preferQuality {
			if a.QualityScore != b.QualityScore {
				return a.QualityScore > b.QualityScore
			}
			if ra, rb := a.Reliability(), b.Reliability(); ra != rb {
				return ra > rb
			}
			if !a.FirstSeen.Equal(b.FirstSeen) {
				return a.FirstSeen.Before(b.FirstSeen)
			}
		}
		return a.URL < b.URL
	})

	selected := make([]*domain.PeerInfo, 0, count)
	bucketCounts := make(map[string]int)
	var skipped []*domain.PeerInfo

	for _, p := range candidates {
		if len(selected) >= count {
			break
		}
		bucket := IPPrefix(p.IPAddress, DefaultPrefixBits)
		if bucketCounts[bucket] >= PerBucketCap {
			skipped = append(skipped, p)
			continue
		}
		bucketCounts[bucket]++
		selected = append(selected, p)
	}

	// Backfill: best remaining quality regardless of bucket.
	for _, p := range skipped {
		if len(selected) >= count {
			break
		}
		selected = append(selected, p)
	}

	return selected
}
