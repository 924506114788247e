// Package sampling holds the seeded random helpers shared by the dataset
// generators. Every helper draws from an explicit *rand.Rand so callers can
// give each batch its own stream and stay reproducible under parallelism.
package sampling

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat/distuv"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const (
	day = 24 * time.Hour

	registrationWindowDays = 5 * 365
	minAgeYears            = 18
	maxAgeYears            = 80
)

// NewRand returns the deterministic generator for one (seed, stream) pair.
func NewRand(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// NewFaker derives a faker from r without sharing its state.
func NewFaker(r *rand.Rand) *gofakeit.Faker {
	return gofakeit.NewFaker(rand.NewPCG(r.Uint64(), r.Uint64()), false)
}

// EmailSHA256 is the identity key: the hex SHA-256 of email.
func EmailSHA256(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

// IdentityPool returns n distinct identities hashed from synthetic emails.
// A repeated email is disambiguated with its position so the pool never
// contains duplicates.
func IdentityPool(r *rand.Rand, n int) []string {
	faker := NewFaker(r)
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for i := 0; len(out) < n; i++ {
		email := faker.Email()
		if _, dup := seen[email]; dup {
			email = strconv.Itoa(i) + "." + email
			if _, dup := seen[email]; dup {
				continue
			}
		}
		seen[email] = struct{}{}
		out = append(out, EmailSHA256(email))
	}
	return out
}

// DateBetween returns start plus a uniform whole number of days in
// [0, days(end-start)]. An empty or inverted range returns start.
func DateBetween(r *rand.Rand, start, end time.Time) time.Time {
	days := int(end.Sub(start) / day)
	if days <= 0 {
		return start
	}
	return start.Add(time.Duration(r.IntN(days+1)) * day)
}

// RegistrationDate is uniform over the five years before now.
func RegistrationDate(r *rand.Rand, now time.Time) time.Time {
	return DateBetween(r, now.Add(-registrationWindowDays*day), now)
}

// BirthDate gives someone between 18 and 80 years (of 365 days) old at now,
// truncated to the day.
func BirthDate(r *rand.Rand, now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return DateBetween(r, today.Add(-maxAgeYears*365*day), today.Add(-minAgeYears*365*day))
}

// Timestamp is a uniform instant within the given number of days before now.
func Timestamp(r *rand.Rand, now time.Time, days int) time.Time {
	window := time.Duration(days) * day
	return now.Add(-window).Add(time.Duration(r.Int64N(int64(window/time.Second)+1)) * time.Second)
}

// Beta draws from Beta(alpha, beta).
func Beta(r *rand.Rand, alpha, beta float64) float64 {
	return distuv.Beta{Alpha: alpha, Beta: beta, Src: r}.Rand()
}

// Poisson draws a count with mean lambda.
func Poisson(r *rand.Rand, lambda float64) int {
	return int(distuv.Poisson{Lambda: lambda, Src: r}.Rand())
}

// Exponential draws with the given scale (mean).
func Exponential(r *rand.Rand, scale float64) float64 {
	return distuv.Exponential{Rate: 1 / scale, Src: r}.Rand()
}

func Normal(r *rand.Rand, mu, sigma float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: r}.Rand()
}

// Uniform draws from [lo, hi).
func Uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// IntBetween draws an integer in [lo, hi] inclusive.
func IntBetween(r *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Choice picks one element uniformly. items must not be empty.
func Choice[T any](r *rand.Rand, items []T) T {
	return items[r.IntN(len(items))]
}

// SampleWithoutReplacement returns k distinct indices from [0, n) in draw
// order. Asking for more than n is a validation error.
func SampleWithoutReplacement(r *rand.Rand, n, k int) ([]int, error) {
	if k < 0 || n < 0 || k > n {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "sample larger than population: k=%d n=%d", k, n)
	}
	if k == 0 {
		return []int{}, nil
	}

	// Partial Fisher-Yates over a sparse swap table.
	swapped := make(map[int]int, k)
	out := make([]int, k)
	for i := 0; i < k; i++ {
		j := i + r.IntN(n-i)
		vi, ok := swapped[i]
		if !ok {
			vi = i
		}
		vj, ok := swapped[j]
		if !ok {
			vj = j
		}
		out[i] = vj
		swapped[j] = vi
	}
	return out, nil
}

// Sample returns k distinct elements of items.
func Sample[T any](r *rand.Rand, items []T, k int) ([]T, error) {
	idx, err := SampleWithoutReplacement(r, len(items), k)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out, nil
}

// UUID returns a version 4 UUID whose bytes come from r.
func UUID(r *rand.Rand) string {
	id, err := uuid.NewRandomFromReader(reader{r})
	if err != nil {
		return uuid.Nil.String()
	}
	return id.String()
}

type reader struct{ r *rand.Rand }

func (rd reader) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += 8 {
		v := rd.r.Uint64()
		for j := 0; j < 8 && i+j < len(p); j++ {
			p[i+j] = byte(v >> (8 * j))
		}
	}
	return len(p), nil
}
