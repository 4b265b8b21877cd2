package home

// SignOutPath receives the sign-out form.
const SignOutPath = "/signout"

// PageData encapsulates rendering state for the home page.
type PageData struct {
	Email string
}
