package httpapi

import (
	"reflect"
	"testing"
	"time"
)

func TestConfigValidate(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "defaults", config: Config{}},
		{name: "wildcard origin", config: Config{AllowedOrigins: []string{"*"}}},
		{name: "custom", config: Config{ListenAddr: "127.0.0.1:9000", RequestTimeout: time.Second, AllowedOrigins: []string{"https://admin.example.com"}}},
		{name: "blank listen addr", config: Config{ListenAddr: "  "}},
		{name: "missing port", config: Config{ListenAddr: "localhost"}, wantErr: true},
		{name: "bad origin", config: Config{AllowedOrigins: []string{"admin.example.com"}}, wantErr: true},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			config := testCase.config
			err := config.Validate()
			if (err != nil) != testCase.wantErr {
				test.Fatalf("expected error %v, got %v", testCase.wantErr, err)
			}
			if err == nil && (config.RequestTimeout <= 0 || config.ShutdownTimeout <= 0 || len(config.AllowedOrigins) == 0) {
				test.Fatalf("defaults not applied: %+v", config)
			}
		})
	}
}

func TestParseAllowedOrigins(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		raw      string
		expected []string
	}{
		{raw: "", expected: []string{}},
		{raw: " , ", expected: []string{}},
		{raw: "http://a.test, https://b.test ,", expected: []string{"http://a.test", "https://b.test"}},
		{raw: "https://admin.test/, https://admin.test", expected: []string{"https://admin.test"}},
		{raw: "*", expected: []string{"*"}},
	}
	for _, testCase := range testCases {
		if got := ParseAllowedOrigins(testCase.raw); !reflect.DeepEqual(got, testCase.expected) {
			test.Fatalf("%q: expected %v, got %v", testCase.raw, testCase.expected, got)
		}
	}
}
