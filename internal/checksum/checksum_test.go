package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("hello")
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := Sum([]byte("hello")); got != want {
		t.Errorf("Sum = %s, want %s", got, want)
	}
	if got := String("hello"); got != want {
		t.Errorf("String = %s, want %s", got, want)
	}
}

func TestMatches(t *testing.T) {
	data := []byte("# Title\n")
	sum := Sum(data)
	if !Matches(sum, data) {
		t.Error("identical content should match")
	}
	if Matches(sum, []byte("# Other\n")) {
		t.Error("changed content should not match")
	}
	if Matches("", nil) {
		t.Error("empty sum should never match")
	}
}
