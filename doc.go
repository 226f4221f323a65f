// Package main provides the entry point for the back-office administration
// application. It runs a web server using the Fiber framework that lets
// administrators manage user accounts, roles, permissions, and site settings
// through a web interface. The application uses gorm for data persistence and
// tracks user presence alongside a cached, grouped settings store.
package main
