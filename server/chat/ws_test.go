package chat

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestParseChatToken(t *testing.T) {
	secret := []byte("test-secret")

	Convey("Given a signed token with full claims", t, func() {
		tokenStr := signToken(t, secret, jwt.MapClaims{
			"sub":          float64(42),
			"displayName":  "Alice",
			"tokenVersion": float64(3),
			"exp":          time.Now().Add(time.Hour).Unix(),
		})

		Convey("Parsing yields the identity and token version", func() {
			userID, displayName, tokenVersion, err := parseChatToken(secret, tokenStr)
			So(err, ShouldBeNil)
			So(userID, ShouldEqual, 42)
			So(displayName, ShouldEqual, "Alice")
			So(tokenVersion, ShouldEqual, 3)
		})
	})

	Convey("Given a token without a tokenVersion claim", t, func() {
		tokenStr := signToken(t, secret, jwt.MapClaims{
			"sub":         float64(7),
			"displayName": "Bob",
			"exp":         time.Now().Add(time.Hour).Unix(),
		})

		Convey("The version defaults to 1", func() {
			_, _, tokenVersion, err := parseChatToken(secret, tokenStr)
			So(err, ShouldBeNil)
			So(tokenVersion, ShouldEqual, 1)
		})
	})

	Convey("Given a token signed with the wrong secret", t, func() {
		tokenStr := signToken(t, []byte("other-secret"), jwt.MapClaims{
			"sub":         float64(42),
			"displayName": "Alice",
			"exp":         time.Now().Add(time.Hour).Unix(),
		})

		Convey("Parsing fails", func() {
			_, _, _, err := parseChatToken(secret, tokenStr)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given an expired token", t, func() {
		tokenStr := signToken(t, secret, jwt.MapClaims{
			"sub":         float64(42),
			"displayName": "Alice",
			"exp":         time.Now().Add(-time.Hour).Unix(),
		})

		Convey("Parsing fails", func() {
			_, _, _, err := parseChatToken(secret, tokenStr)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a token missing identity claims", t, func() {
		Convey("No displayName is rejected", func() {
			tokenStr := signToken(t, secret, jwt.MapClaims{
				"sub": float64(42),
				"exp": time.Now().Add(time.Hour).Unix(),
			})
			_, _, _, err := parseChatToken(secret, tokenStr)
			So(err, ShouldNotBeNil)
		})

		Convey("No subject is rejected", func() {
			tokenStr := signToken(t, secret, jwt.MapClaims{
				"displayName": "Alice",
				"exp":         time.Now().Add(time.Hour).Unix(),
			})
			_, _, _, err := parseChatToken(secret, tokenStr)
			So(err, ShouldNotBeNil)
		})
	})
}
