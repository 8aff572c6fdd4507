package config

// Everything gsp owns lives under home (~/.gsp or GSP_HOME); there is no override per directory.

// Home returns the gsp root directory (ResolveHome()).
func Home() string {
	return ResolveHome()
}
