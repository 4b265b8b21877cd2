package helpers

// ButtonClass maps button variants to utility classes.
func ButtonClass(variant string) string {
	switch variant {
	case "outline":
		return "btn btn-outline btn-lg w-full relative"
	case "link":
		return "btn-link"
	default:
		return "btn btn-primary btn-lg w-full"
	}
}

// ProviderLabel is the visible name of an OAuth provider.
func ProviderLabel(provider string) string {
	switch provider {
	case "google":
		return "Google"
	case "github":
		return "GitHub"
	default:
		return provider
	}
}
