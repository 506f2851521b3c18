package compute

import "strings"

// SSHUserForImage guesses the default login user from the image name. The
// mapping follows the conventional cloud image users; unknown images fall
// back to cc, the site-wide default account.
func SSHUserForImage(image string) string {
	name := strings.ToLower(image)
	switch {
	case strings.Contains(name, "ubuntu"):
		return "ubuntu"
	case strings.Contains(name, "centos"):
		return "centos"
	case strings.Contains(name, "rocky"), strings.Contains(name, "alma"):
		return "cloud-user"
	case strings.Contains(name, "debian"):
		return "debian"
	case strings.Contains(name, "fedora"):
		return "fedora"
	default:
		return "cc"
	}
}
