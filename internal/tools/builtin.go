package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenant-rag-chatbot/internal/ai"
	"tenant-rag-chatbot/internal/retriever"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/models"
)

// NewBuiltinRegistry returns the standard tool set every tenant's assistant
// gets: knowledge search plus catalog lookup tools.
func NewBuiltinRegistry(r *retriever.Retriever, products store.ProductStore, timeout time.Duration) *Registry {
	registry := NewRegistry(timeout)

	registry.Register(Tool{
		Name:        "knowledge_search",
		Description: "Search the knowledge base for information relevant to the customer's question.",
		Params: []ai.ToolParam{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "limit", Type: "integer", Description: "Maximum number of results to return"},
			{Name: "min_score", Type: "number", Description: "Minimum similarity score between 0 and 1"},
		},
		Handler: searchKnowledgeHandler(r),
	})

	registry.Register(Tool{
		Name:        "product_search",
		Description: "Search the product catalog. Supports optional category and price range filters.",
		Params: []ai.ToolParam{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "category", Type: "string", Description: "Filter by product category"},
			{Name: "min_price", Type: "number", Description: "Minimum price"},
			{Name: "max_price", Type: "number", Description: "Maximum price"},
			{Name: "limit", Type: "integer", Description: "Maximum number of results to return"},
		},
		Handler: searchProductsHandler(r),
	})

	registry.Register(Tool{
		Name:        "get_product_details",
		Description: "Get full details for a single product by its ID.",
		Params: []ai.ToolParam{
			{Name: "product_id", Type: "string", Description: "Product ID", Required: true},
		},
		Handler: productDetailsHandler(products),
	})

	registry.Register(Tool{
		Name:        "check_product_availability",
		Description: "Check whether a product is in stock and how many units remain.",
		Params: []ai.ToolParam{
			{Name: "product_id", Type: "string", Description: "Product ID", Required: true},
		},
		Handler: productAvailabilityHandler(products),
	})

	return registry
}

func searchKnowledgeHandler(r *retriever.Retriever) Handler {
	return func(ctx context.Context, tenantID string, args map[string]interface{}) (interface{}, error) {
		query := args["query"].(string)
		limit := intArg(args, "limit", 5)
		minScore, hasMinScore := args["min_score"].(float64)

		results, err := r.SearchKnowledge(ctx, tenantID, query, limit)
		if err != nil {
			return nil, fmt.Errorf("knowledge search failed: %w", err)
		}

		out := make([]map[string]interface{}, 0, len(results))
		for _, res := range results {
			if hasMinScore && res.Score < minScore {
				continue
			}
			out = append(out, map[string]interface{}{
				"title":   res.Item.Title,
				"content": res.Item.Content,
				"source":  res.Item.Source,
				"score":   res.Score,
			})
		}
		return map[string]interface{}{"results": out}, nil
	}
}

func searchProductsHandler(r *retriever.Retriever) Handler {
	return func(ctx context.Context, tenantID string, args map[string]interface{}) (interface{}, error) {
		query := args["query"].(string)
		limit := intArg(args, "limit", 10)

		results, err := r.SearchProducts(ctx, tenantID, query, limit)
		if err != nil {
			return nil, fmt.Errorf("product search failed: %w", err)
		}

		category, _ := args["category"].(string)
		minPrice, hasMin := args["min_price"].(float64)
		maxPrice, hasMax := args["max_price"].(float64)

		out := make([]map[string]interface{}, 0, len(results))
		for _, res := range results {
			p := res.Item
			if category != "" && p.Category != category {
				continue
			}
			if hasMin && p.Price < minPrice {
				continue
			}
			if hasMax && p.Price > maxPrice {
				continue
			}
			out = append(out, map[string]interface{}{
				"product_id": p.ID,
				"name":       p.Name,
				"category":   p.Category,
				"price":      p.Price,
				"currency":   p.Currency,
				"score":      res.Score,
			})
		}
		return map[string]interface{}{"results": out}, nil
	}
}

func productDetailsHandler(products store.ProductStore) Handler {
	return func(ctx context.Context, tenantID string, args map[string]interface{}) (interface{}, error) {
		productID := args["product_id"].(string)

		product, err := products.GetByID(ctx, tenantID, productID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %s not found", productID)
		}
		if err != nil {
			return nil, fmt.Errorf("fetching product: %w", err)
		}
		return productView(product), nil
	}
}

func productAvailabilityHandler(products store.ProductStore) Handler {
	return func(ctx context.Context, tenantID string, args map[string]interface{}) (interface{}, error) {
		productID := args["product_id"].(string)

		product, err := products.GetByID(ctx, tenantID, productID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %s not found", productID)
		}
		if err != nil {
			return nil, fmt.Errorf("fetching product: %w", err)
		}

		return map[string]interface{}{
			"product_id":     product.ID,
			"name":           product.Name,
			"in_stock":       product.IsActive && product.StockQuantity > 0,
			"stock_quantity": product.StockQuantity,
		}, nil
	}
}

func productView(p *models.ProductItem) map[string]interface{} {
	return map[string]interface{}{
		"product_id":     p.ID,
		"name":           p.Name,
		"description":    p.Description,
		"category":       p.Category,
		"price":          p.Price,
		"currency":       p.Currency,
		"sku":            p.SKU,
		"stock_quantity": p.StockQuantity,
		"metadata":       p.Metadata,
	}
}

func intArg(args map[string]interface{}, name string, fallback int) int {
	if v, ok := args[name].(int); ok && v > 0 {
		return v
	}
	return fallback
}
