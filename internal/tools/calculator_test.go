package tools

import (
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		status  string
		result  string
		message string
	}{
		{"integer arithmetic", "10 * 5 + 2", StatusSuccess, "52", ""},
		{"currency stripped", "$50 + $20", StatusSuccess, "70", ""},
		{"no expression", "Hello World", StatusError, "", "No valid math expression found"},
		{"budget sum", "2000 + 250 + 1000 + 430", StatusSuccess, "3680", ""},
		{"fractional division", "10 / 4", StatusSuccess, "2.5", ""},
		{"integral division", "10 / 5", StatusSuccess, "2", ""},
		{"decimals", "1.5 * 2", StatusSuccess, "3", ""},
		{"parentheses", "(1 + 2) * 3", StatusSuccess, "9", ""},
		{"modulo", "17 % 5", StatusSuccess, "2", ""},
		{"units stripped", "3 nights * 120 EUR", StatusSuccess, "360", ""},
		{"division by zero", "1 / 0", StatusError, "", "Division by zero"},
		{"modulo by zero", "5 % 0", StatusError, "", "Division by zero"},
		{"dangling operator", "5 +", StatusError, "", "Invalid syntax in: 5 +"},
		{"negative modulo", "-7 % 3", StatusSuccess, "2", ""},
		{"float modulo", "5.5 % 2", StatusSuccess, "1.5", ""},
		{"float modulo by zero", "5.5 % 0", StatusError, "", "Division by zero"},
		{"unary minus", "-3 * 4", StatusSuccess, "-12", ""},
		{"product past exact range", "9999999999 * 9999999999", StatusError, "", "Number too large to compute exactly"},
		{"literal past exact range", "9223372036854775807 + 1", StatusError, "", "Number too large to compute exactly"},
		{"large but exact", "9999999 * 9999999", StatusSuccess, "99999980000001", ""},
		{"too long", strings.Repeat("1+", 60) + "1", StatusError, "", "Expression too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.in)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.result, got.Result)
			if tt.message != "" {
				assert.Equal(t, tt.message, got.Message)
			}
		})
	}
}

func TestEvaluateKeepsInputs(t *testing.T) {
	got := Evaluate("$50 + $20")
	assert.Equal(t, "$50 + $20", got.OriginalInput)
	assert.Equal(t, "50 + 20", got.CleanedInput)
	assert.JSONEq(t,
		`{"status":"SUCCESS","original_input":"$50 + $20","cleaned_input":"50 + 20","result":"70"}`,
		got.JSON())
}

func TestCalculatorIsIdempotentAndCached(t *testing.T) {
	cache, err := NewCache[CalcResult]("calculator_test", 128)
	require.NoError(t, err)
	calc := NewCalculator(cache)

	first, hit := calc.Run("10 * 5 + 2")
	assert.False(t, hit)
	second, hit := calc.Run("10 * 5 + 2")
	assert.True(t, hit)

	assert.Equal(t, first.JSON(), second.JSON())
	assert.Equal(t, 1, cache.Len())
}

func TestCalculatorWithoutCache(t *testing.T) {
	calc := NewCalculator(nil)
	a, hit := calc.Run("2 * 21")
	assert.False(t, hit)
	b, _ := calc.Run("2 * 21")
	assert.Equal(t, a, b)
	assert.Equal(t, "42", a.Result)
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	cache, err := NewCache[string]("error_test", 4)
	require.NoError(t, err)

	calls := 0
	fail := func() (string, error) {
		calls++
		return "", errors.New("backend down")
	}
	_, _, err = cache.Do("k", fail)
	assert.Error(t, err)
	_, _, err = cache.Do("k", fail)
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := NewCache[int]("evict_test", 2)
	require.NoError(t, err)

	val := func(n int) func() (int, error) { return func() (int, error) { return n, nil } }
	cache.Do("a", val(1))
	cache.Do("b", val(2))
	cache.Do("a", val(1)) // a is now most recent
	cache.Do("c", val(3)) // evicts b

	_, hit, _ := cache.Do("a", val(1))
	assert.True(t, hit)
	_, hit, _ = cache.Do("b", val(2))
	assert.False(t, hit)
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	cache, err := NewCache[int]("flight_test", 8)
	require.NoError(t, err)

	var calls int32
	release := make(chan struct{})
	fn := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, _ := cache.Do("same", fn)
			results[i] = v
		}(i)
	}
	// let the goroutines pile up on the in-flight call
	for atomic.LoadInt32(&calls) == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 7, v)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(5))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestNewCacheRejectsBadSize(t *testing.T) {
	_, err := NewCache[int]("bad", 0)
	assert.Error(t, err)
}
