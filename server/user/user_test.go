package user_test

import (
	"testing"

	"ctfhub/server/user"

	. "github.com/smartystreets/goconvey/convey"
)

func TestValidatePasswordStrength(t *testing.T) {
	Convey("Given the password policy", t, func() {
		Convey("When the password satisfies all rules", func() {
			valid, msg := user.ValidatePasswordStrength("Str0ng!pass")
			So(valid, ShouldBeTrue)
			So(msg, ShouldBeEmpty)
		})

		Convey("When the password is too short", func() {
			valid, _ := user.ValidatePasswordStrength("Ab1!x")
			So(valid, ShouldBeFalse)
		})

		Convey("When a character class is missing", func() {
			cases := []string{
				"lowercase1!only", // 无大写
				"UPPERCASE1!ONLY", // 无小写
				"NoDigitsHere!",   // 无数字
				"NoSpecial123ab",  // 无特殊符号
			}
			for _, pw := range cases {
				valid, msg := user.ValidatePasswordStrength(pw)
				So(valid, ShouldBeFalse)
				So(msg, ShouldNotBeEmpty)
			}
		})
	})
}
