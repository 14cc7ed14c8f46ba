package controllers

import "github.com/zaqqye/absensi_backend_v1/internal/models"

func IsValidRole(role models.Role) bool {
    return role.Valid()
}
