package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           modeld fleet API
// @version         1.0
// @description     HTTP API for model lifecycle management and pipeline inference.
//
// @contact.name   modeld fleet maintainers
// @contact.url    https://github.com/modeld/fleet
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
