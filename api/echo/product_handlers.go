package marketecho

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/services"
)

func (a *API) ListCategories(c echo.Context) error {
	cats, err := a.catalog.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cats)
}

func (a *API) CreateCategory(c echo.Context) error {
	var req CategoryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid category payload")
	}
	if err := a.catalog.CreateCategory(c.Request().Context(), req.Name); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, MessageResponse{Message: "Category created."})
}

func (a *API) ListProducts(c echo.Context) error {
	offset, limit, err := pagination(c)
	if err != nil {
		return err
	}
	products, err := a.catalog.List(c.Request().Context(), c.Param("category"), offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, products)
}

func (a *API) GetProduct(c echo.Context) error {
	p, err := a.catalog.Get(c.Request().Context(), c.Param("category"), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// CreateProduct adds a product owned by the calling seller.
func (a *API) CreateProduct(c echo.Context) error {
	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid product payload")
	}
	p, err := a.catalog.Create(c.Request().Context(), c.Param("category"), principal(c).Profile.Username, services.ProductInput{
		Brand:       req.Brand,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

// UpdateProduct lets a seller edit their own product.
func (a *API) UpdateProduct(c echo.Context) error {
	var req ProductUpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid product payload")
	}
	p, err := a.catalog.Update(c.Request().Context(), c.Param("category"), c.Param("id"), principal(c).Profile.Username, domain.ProductUpdate{
		Brand:       req.Brand,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (a *API) DeleteProduct(c echo.Context) error {
	if err := a.catalog.Delete(c.Request().Context(), c.Param("category"), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Product deleted."})
}
