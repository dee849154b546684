// Package proxy writes nginx virtual hosts using the sites-available and
// sites-enabled layout.
package proxy
