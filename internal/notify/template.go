package notify

import (
	"html/template"
	texttemplate "text/template"
	"time"
)

// otpSubject is the subject line of every verification email.
const otpSubject = "Email Verification - OTP"

// otpData feeds both the HTML and the plain-text bodies.
type otpData struct {
	Username string
	Code     string
	Minutes  int
}

func newOTPData(code, username string, ttl time.Duration) otpData {
	return otpData{Username: username, Code: code, Minutes: int(ttl.Minutes())}
}

// html/template escapes Username, which comes straight from signup input.
var otpHTML = template.Must(template.New("otp.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Email Verification</h2>
  <p>Hello {{.Username}},</p>
  <p>Your verification code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
  <p>This code will expire in {{.Minutes}} minutes.</p>
  <p>If you did not create an account, you can ignore this email.</p>
</body>
</html>
`))

var otpText = texttemplate.Must(texttemplate.New("otp.txt").Parse(`Hello {{.Username}},

Your verification code is: {{.Code}}

This code will expire in {{.Minutes}} minutes.
If you did not create an account, you can ignore this email.
`))
