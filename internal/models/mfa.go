package models

// MFASetup: данные для подключения TOTP-приложения.
type MFASetup struct {
	// Secret: base32-секрет для ручного ввода.
	Secret string
	// OTPAuthURL: otpauth:// URI, закодированный в QR.
	OTPAuthURL string
	// QRCode: PNG в виде data URL (data:image/png;base64,...).
	QRCode string
}
