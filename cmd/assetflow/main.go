// Command assetflow runs the asset tasks of a web project: it builds scripts,
// styles and images, supervises the development server and reloads
// connected browsers when sources change.
package main

func main() {
	Execute()
}
